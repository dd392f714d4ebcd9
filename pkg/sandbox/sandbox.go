// Package sandbox runs rule-authored extraction scripts against a parsed
// document in an embedded ECMAScript runtime.
//
// A script is the body of a function called with exactly five arguments:
//
//	function (document, url, PropertyType, cleanUrl, baseMeta) { ... }
//
// and must return an array of {name, type, value, typeArgs?} objects. Each
// invocation gets a fresh runtime; nothing persists between runs and the
// runtime has no access to the host beyond these bindings.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"
	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/fetcher"
	"github.com/dtnitsch/linkmeta/pkg/locator"
)

const maxCallStackSize = 1024

var errTimeout = errors.New("script timed out")

// Options configures a Sandbox.
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Sandbox executes extraction scripts. It holds no runtime state and is safe
// for concurrent use.
type Sandbox struct {
	timeout time.Duration
	logger  *slog.Logger
}

func New(opts Options) *Sandbox {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = models.DefaultScriptTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sandbox{timeout: timeout, logger: logger}
}

// Run executes the rule's script. An empty script yields baseMeta. Any
// failure is a *models.ScriptError.
func (s *Sandbox) Run(ctx context.Context, rule models.Rule, doc *fetcher.Document, baseMeta []models.Property) (props []models.Property, err error) {
	if rule.Script.IsEmpty() {
		return append([]models.Property(nil), baseMeta...), nil
	}

	fail := func(cause error) error {
		return &models.ScriptError{Rule: rule.Name, Err: cause}
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)

	src := "(function (document, url, PropertyType, cleanUrl, baseMeta) {\n" + rule.Script.Source() + "\n})"
	compiled, err := vm.RunScript(rule.Name, src)
	if err != nil {
		return nil, fail(fmt.Errorf("failed to compile script: %w", err))
	}
	fn, ok := goja.AssertFunction(compiled)
	if !ok {
		return nil, fail(errors.New("script did not compile to a function"))
	}

	timer := time.AfterFunc(s.timeout, func() { vm.Interrupt(errTimeout) })
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			props, err = nil, fail(fmt.Errorf("script panicked: %v", r))
		}
	}()

	bridge := &domBridge{vm: vm, pageURL: doc.URL}
	start := time.Now()
	result, err := fn(goja.Undefined(),
		bridge.document(doc.Doc),
		vm.ToValue(doc.URL),
		propertyTypeObject(vm),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(locator.CleanURL(call.Argument(0).String()))
		}),
		propertiesToJS(vm, baseMeta),
	)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return nil, fail(cause)
			}
		}
		return nil, fail(err)
	}
	s.logger.Debug("script finished", "rule", rule.Name, "duration", time.Since(start))

	props, err = exportProperties(vm, result)
	if err != nil {
		return nil, fail(err)
	}
	return props, nil
}

func propertyTypeObject(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	for name, value := range models.PropertyTypeEnum() {
		_ = obj.Set(name, value)
	}
	return obj
}

func exportProperties(vm *goja.Runtime, result goja.Value) ([]models.Property, error) {
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, errors.New("script returned nothing, want an array of properties")
	}
	if obj, ok := result.(*goja.Object); !ok || obj.ClassName() != "Array" {
		return nil, fmt.Errorf("script returned %s, want an array of properties", result.ExportType())
	}

	items, ok := result.Export().([]interface{})
	if !ok {
		return nil, errors.New("script result could not be exported as an array")
	}

	props := make([]models.Property, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("item %d is %T, want a property object", i, item)
		}
		prop, err := models.PropertyFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		props = append(props, prop)
	}
	return props, nil
}

func propertiesToJS(vm *goja.Runtime, props []models.Property) *goja.Object {
	items := make([]interface{}, 0, len(props))
	for _, p := range props {
		obj := vm.NewObject()
		_ = obj.Set("name", p.Name)
		_ = obj.Set("type", int(p.Type))
		_ = obj.Set("value", toJS(vm, p.Value))
		if !p.TypeArgs.IsEmpty() {
			args := vm.NewObject()
			for k, v := range p.TypeArgs.Extra {
				_ = args.Set(k, toJS(vm, v))
			}
			if p.TypeArgs.SubType != "" {
				_ = args.Set("subType", p.TypeArgs.SubType)
			}
			if p.TypeArgs.Choices != nil {
				choices := make([]interface{}, 0, len(p.TypeArgs.Choices))
				for _, c := range p.TypeArgs.Choices {
					choice := vm.NewObject()
					_ = choice.Set("name", c.Name)
					_ = choice.Set("color", c.Color)
					choices = append(choices, choice)
				}
				_ = args.Set("choices", vm.NewArray(choices...))
			}
			_ = obj.Set("typeArgs", args)
		}
		items = append(items, obj)
	}
	return vm.NewArray(items...)
}

// toJS converts slices to real arrays so scripts can use array methods.
func toJS(vm *goja.Runtime, v any) goja.Value {
	switch val := v.(type) {
	case []string:
		items := make([]interface{}, len(val))
		for i, s := range val {
			items[i] = s
		}
		return vm.NewArray(items...)
	case []any:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = toJS(vm, item)
		}
		return vm.NewArray(items...)
	default:
		return vm.ToValue(v)
	}
}
