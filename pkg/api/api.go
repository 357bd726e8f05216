// Package api implements the REST API for validating and evaluating
// template expressions and scanning documents for secret references.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aqueductflow/aqueduct/pkg/eval"
	"github.com/aqueductflow/aqueduct/pkg/expr"
	"github.com/aqueductflow/aqueduct/pkg/secrets"
	"github.com/aqueductflow/aqueduct/pkg/template"
	"github.com/aqueductflow/aqueduct/pkg/types"
	"github.com/aqueductflow/aqueduct/pkg/validate"
)

// Server is the expression service API server.
type Server struct {
	app   *fiber.App
	store *secrets.Store
}

// New creates a new API server backed by the given secret store.
func New(store *secrets.Store) *Server {
	srv := &Server{store: store}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	// Expressions API
	app.Post("/v1/expressions/validate", srv.validateExpressions)
	app.Post("/v1/expressions/evaluate", srv.evaluateExpression)

	// Templates API
	app.Post("/v1/templates/secrets", srv.extractTemplateSecrets)

	// Secret seeding (used by tests and local development)
	app.Post("/v1/secrets", srv.putSecret)
	app.Post("/v1/oauth/grants", srv.putGrant)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(400).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    400,
			"message": message,
			"status":  "INVALID_ARGUMENT",
		},
	})
}

// --- Expression Handlers ---

type validateRequest struct {
	Expressions []string `json:"expressions"`
	ActionRefs  []string `json:"action_refs"`
	Inputs      []string `json:"inputs"`
	Environment string   `json:"environment"`
}

func (s *Server) validateExpressions(c *fiber.Ctx) error {
	var req validateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if len(req.Expressions) == 0 {
		return badRequest(c, "expressions is required")
	}

	schema := validate.WorkflowSchema{
		Environment: req.Environment,
	}
	if req.ActionRefs != nil {
		schema.ActionRefs = make(map[string]bool, len(req.ActionRefs))
		for _, ref := range req.ActionRefs {
			schema.ActionRefs[ref] = true
		}
	}
	if req.Inputs != nil {
		schema.Inputs = make(map[string]bool, len(req.Inputs))
		for _, name := range req.Inputs {
			schema.Inputs[name] = true
		}
	}

	v := validate.New(schema, s.store, s.store)
	for _, expression := range req.Expressions {
		v.Validate(expression)
	}
	results := v.Finish(c.Context())

	return c.JSON(fiber.Map{"results": results})
}

type evaluateRequest struct {
	Expression string                 `json:"expression"`
	Operand    map[string]interface{} `json:"operand"`
	NonStrict  bool                   `json:"non_strict"`
}

func (s *Server) evaluateExpression(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if req.Expression == "" {
		return badRequest(c, "expression is required")
	}

	operand := make(map[string]types.Value, len(req.Operand))
	for k, v := range req.Operand {
		operand[k] = types.FromGo(v)
	}

	node, err := expr.Parse(req.Expression)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ev := eval.New(operand)
	if req.NonStrict {
		ev = eval.NewNonStrict(operand)
	}
	result, err := ev.Eval(node)
	if err != nil {
		if evalErr, ok := err.(*types.EvalError); ok {
			return c.Status(422).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    422,
					"message": evalErr.Message,
					"status":  "FAILED_PRECONDITION",
					"tags":    evalErr.Tags,
				},
			})
		}
		return badRequest(c, err.Error())
	}

	return c.JSON(fiber.Map{"result": result})
}

// --- Template Handlers ---

type templateSecretsRequest struct {
	Document interface{} `json:"document"`
}

func (s *Server) extractTemplateSecrets(c *fiber.Ctx) error {
	var req templateSecretsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if req.Document == nil {
		return badRequest(c, "document is required")
	}

	refs := template.ExtractSecretPaths(types.FromGo(req.Document))
	return c.JSON(fiber.Map{
		"secrets": refs.Secrets,
		"oauth":   refs.OAuth,
	})
}

// --- Secret Handlers ---

type putSecretRequest struct {
	Environment string `json:"environment"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	Value       string `json:"value"`
}

func (s *Server) putSecret(c *fiber.Ctx) error {
	var req putSecretRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if req.Environment == "" || req.Name == "" || req.Key == "" {
		return badRequest(c, "environment, name, and key are required")
	}
	s.store.Put(req.Environment, req.Name, req.Key, req.Value)
	return c.Status(201).JSON(fiber.Map{"status": "created"})
}

type putGrantRequest struct {
	Provider string `json:"provider"`
	Grant    string `json:"grant"`
}

func (s *Server) putGrant(c *fiber.Ctx) error {
	var req putGrantRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if req.Provider == "" {
		return badRequest(c, "provider is required")
	}
	if req.Grant != secrets.GrantService && req.Grant != secrets.GrantUser {
		return badRequest(c, "grant must be \"service\" or \"user\"")
	}
	s.store.GrantOAuth(req.Provider, req.Grant)
	return c.Status(201).JSON(fiber.Map{"status": "created"})
}
