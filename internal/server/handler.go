package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/howard-nolan/sgenius/internal/metrics"
	"github.com/howard-nolan/sgenius/internal/normalize"
	"github.com/howard-nolan/sgenius/internal/prompt"
	"github.com/howard-nolan/sgenius/internal/provider"
)

// maxQuizQuestions caps num_questions so one request can't ask for an
// arbitrarily long generation.
const maxQuizQuestions = 50

// ---------------------------------------------------------------------------
// Inbound request bodies
// ---------------------------------------------------------------------------

type chatRequest struct {
	Message flexString `json:"message"`
}

type feedbackRequest struct {
	Subject flexString `json:"subject"`
	Grade   flexString `json:"grade"`
	Title   flexString `json:"title"`
}

type hintRequest struct {
	Subject flexString `json:"subject"`
	Title   flexString `json:"title"`
}

type quizRequest struct {
	Subject      flexString `json:"subject"`
	Topics       flexString `json:"topics"`
	NumQuestions *flexInt   `json:"num_questions"` // nil means "use the default"
}

// endpoint describes how one route turns a normalized response into an
// HTTP body.
type endpoint struct {
	name string

	// envelope is the key the payload is wrapped in. Empty means the
	// payload itself is the body.
	envelope string

	// schema, when set, must accept the parsed JSON payload.
	schema *normalize.Schema

	// messages overrides the generic client-facing error text per kind.
	messages map[errorKind]string
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// handleHealth responds with a simple JSON status indicating the server
// is alive. It never touches the generation service.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat handles POST /chat: {message} → {response}.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ep := endpoint{name: "chat", envelope: "response"}

	var in chatRequest
	if err := decodeBody(w, r, s.cfg.Server.MaxBodyBytes, &in); err != nil {
		s.fail(w, r, ep, err)
		return
	}
	if in.Message.blank() {
		s.fail(w, r, ep, &missingFieldError{field: "message", msg: "No message provided"})
		return
	}

	s.generate(w, r, ep, prompt.Chat(in.Message.String(), s.chatFormat))
}

// handleFeedback handles POST /api/feedback: {subject, grade, title} → {feedback}.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	ep := endpoint{name: "feedback", envelope: "feedback"}

	var in feedbackRequest
	if err := decodeBody(w, r, s.cfg.Server.MaxBodyBytes, &in); err != nil {
		s.fail(w, r, ep, err)
		return
	}
	if err := requireFields(
		field{"subject", in.Subject},
		field{"grade", in.Grade},
		field{"title", in.Title},
	); err != nil {
		s.fail(w, r, ep, err)
		return
	}

	s.generate(w, r, ep, prompt.Feedback(in.Subject.String(), in.Grade.String(), in.Title.String()))
}

// handleHint handles POST /api/hint: {subject, title} → {hint}.
func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	ep := endpoint{name: "hint", envelope: "hint"}

	var in hintRequest
	if err := decodeBody(w, r, s.cfg.Server.MaxBodyBytes, &in); err != nil {
		s.fail(w, r, ep, err)
		return
	}
	if err := requireFields(
		field{"subject", in.Subject},
		field{"title", in.Title},
	); err != nil {
		s.fail(w, r, ep, err)
		return
	}

	s.generate(w, r, ep, prompt.Hint(in.Subject.String(), in.Title.String()))
}

// handleGenerateQuiz handles POST /api/generate-quiz. The body on success
// is the model's quiz object itself, after it has passed the schema.
func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	ep := endpoint{
		name:   "generate-quiz",
		schema: s.quizSchema,
		messages: map[errorKind]string{
			kindConfiguration: "An internal server error occurred while generating the quiz.",
			kindUpstream:      "An internal server error occurred while generating the quiz.",
			kindInternal:      "An internal server error occurred while generating the quiz.",
			kindInvalidFormat: "Failed to generate quiz. The AI returned an invalid format.",
		},
	}

	var in quizRequest
	if err := decodeBody(w, r, s.cfg.Server.MaxBodyBytes, &in); err != nil {
		s.fail(w, r, ep, err)
		return
	}
	if err := requireFields(field{"subject", in.Subject}); err != nil {
		s.fail(w, r, ep, err)
		return
	}

	n := prompt.DefaultNumQuestions
	if in.NumQuestions != nil {
		n = int(*in.NumQuestions)
		if n < 1 || n > maxQuizQuestions {
			s.fail(w, r, ep, badRequest("num_questions must be between 1 and %d", maxQuizQuestions))
			return
		}
	}

	s.generate(w, r, ep, prompt.Quiz(in.Subject.String(), in.Topics.String(), n))
}

// ---------------------------------------------------------------------------
// Shared pipeline
// ---------------------------------------------------------------------------

type field struct {
	name  string
	value flexString
}

// requireFields returns a missing-field error for the first blank field.
// Required fields never get defaults.
func requireFields(fields ...field) error {
	for _, f := range fields {
		if f.value.blank() {
			return missingField(f.name)
		}
	}
	return nil
}

// generate runs Generate → Normalize → (schema) → Respond for a request
// that has already passed validation. Every endpoint shares this pipeline;
// the only things that differ per route are the prompt that goes in and
// the endpoint description that says how the result is wrapped.
//
// The request context is handed straight to the generator, so a client
// that hangs up cancels the outbound call too. Nothing here retries: one
// inbound request is at most one call to the model.
func (s *Server) generate(w http.ResponseWriter, r *http.Request, ep endpoint, req *provider.Request) {
	// Step 1: Call the model. The duration is recorded whether or not the
	// call succeeds, since slow failures are the ones worth seeing.
	start := time.Now()
	raw, err := s.gen.Generate(r.Context(), req)
	metrics.GenerationDuration.WithLabelValues(ep.name, req.Format.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		s.fail(w, r, ep, err)
		return
	}

	// Step 2: Turn the raw model text into a response of the kind we asked
	// for. JSON mode gets a strict parse here; the quiz additionally has
	// to match its schema before anything reaches the browser.
	res := normalize.Normalize(raw, req.Format)
	if ep.schema != nil {
		res = ep.schema.Validate(res)
	}
	if err := res.Err(); err != nil {
		s.fail(w, r, ep, err)
		return
	}

	// Step 3: Wrap and send. /chat and the quiz return the payload as the
	// whole body; feedback and hint put it under a named key.
	var body any = res.Payload()
	if ep.envelope != "" {
		body = map[string]any{ep.envelope: body}
	}
	writeJSON(w, http.StatusOK, body)
}

// fail logs err with full detail and writes the generic client-facing
// error. Request field values are never logged.
//
// The log line and the response body carry different things. Operators
// get the whole wrapped error chain tied to the request ID. The browser
// only ever sees one of the fixed messages, so upstream bodies and keys
// can't leak through it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, ep endpoint, err error) {
	kind := classify(err)
	status := kind.status()

	attrs := []any{
		"request_id", middleware.GetReqID(r.Context()),
		"endpoint", ep.name,
		"kind", string(kind),
		"status", status,
		"error", err.Error(),
	}
	var br *badRequestError
	if errors.As(err, &br) && br.cause != nil {
		attrs = append(attrs, "cause", br.cause.Error())
	}
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", attrs...)
	} else {
		s.log.WarnContext(r.Context(), "request rejected", attrs...)
	}

	switch kind {
	case kindConfiguration, kindUpstream, kindInvalidFormat:
		metrics.GenerationErrors.WithLabelValues(ep.name, string(kind)).Inc()
	}

	writeError(w, status, publicMessage(kind, err, ep.messages))
}
