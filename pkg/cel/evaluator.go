package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"hookbridge/pkg/models"
)

// Evaluator compiles boolean CEL expressions over an InboundEvent. The
// variables exposed are event_id, type, tenant_id, actor_id and payload.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("event_id", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("tenant_id", cel.StringType),
		cel.Variable("actor_id", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// Filter is a compiled boolean expression.
type Filter struct {
	expression string
	program    cel.Program
}

func (f *Filter) Expression() string {
	return f.expression
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) Compile(expression string) (*Filter, error) {
	ast, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Filter{expression: expression, program: program}, nil
}

func (e *Evaluator) compile(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return ast, nil
}

func (f *Filter) Matches(ctx context.Context, event models.InboundEvent) (bool, error) {
	payload := event.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	result, _, err := f.program.ContextEval(ctx, map[string]interface{}{
		"event_id":  event.EventID,
		"type":      string(event.EventType),
		"tenant_id": event.TenantID,
		"actor_id":  event.ActorID,
		"payload":   payload,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return matched, nil
}

// CompileAll compiles every expression, failing on the first invalid one.
func (e *Evaluator) CompileAll(expressions []string) ([]*Filter, error) {
	filters := make([]*Filter, 0, len(expressions))
	for i, expr := range expressions {
		f, err := e.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}
