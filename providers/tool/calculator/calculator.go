package calculator

import (
	"context"
	"math"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/tool"
)

// Name is the tool name advertised to the model.
const Name = "calculator"

// New returns the calculator descriptor. Extra options are applied after the
// defaults, so callers can override the description or add an approval policy.
func New(options ...tool.Option) *tool.Descriptor {
	defaults := []tool.Option{
		tool.WithDescription("Performs one arithmetic operation (add, sub, mul, div, pow, mod) on two numbers."),
	}
	return tool.MustTool(Name, Calc, append(defaults, options...)...)
}

// Calc applies req.Op to A and B. Division or modulo by zero and unknown
// operations are reported as InvalidToolInput so that the model can correct
// its call.
//
//	out, _ := calculator.Calc(ctx, calculator.Input{A: 10, B: 4, Op: "div"})
//	// out.Result == 2.5
func Calc(_ context.Context, req Input) (Output, error) {
	var result float64
	switch req.Op {
	case "add", "+":
		result = req.A + req.B
	case "sub", "-":
		result = req.A - req.B
	case "mul", "*":
		result = req.A * req.B
	case "div", "/":
		if req.B == 0 {
			return Output{}, ai.NewError(ai.KindInvalidToolInput, "division by zero")
		}
		result = req.A / req.B
	case "mod", "%":
		if req.B == 0 {
			return Output{}, ai.NewError(ai.KindInvalidToolInput, "modulo by zero")
		}
		result = math.Mod(req.A, req.B)
	case "pow", "^":
		result = math.Pow(req.A, req.B)
	default:
		return Output{}, ai.NewError(ai.KindInvalidToolInput, "unknown operation %q", req.Op)
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return Output{}, ai.NewError(ai.KindToolExecution, "result is not a finite number")
	}
	return Output{Result: result}, nil
}

// Input holds the operands and the operation.
type Input struct {
	A  float64 `json:"a" jsonschema:"description=First operand"`
	B  float64 `json:"b" jsonschema:"description=Second operand"`
	Op string  `json:"op" jsonschema:"enum=add,enum=sub,enum=mul,enum=div,enum=pow,enum=mod,description=Operation to apply"`
}

// Output carries the result.
type Output struct {
	Result float64 `json:"result"`
}
