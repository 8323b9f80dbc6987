package catalog

import (
	"context"
	"fmt"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
)

// Executor runs a batch of Commands against a Catalog with the sequence
// semantics of spec §4.4.
type Executor struct {
	catalog *Catalog
}

func NewExecutor(catalog *Catalog) *Executor {
	return &Executor{catalog: catalog}
}

// Execute runs cmd through the catalog: lookup, mask, validate, inject
// deps, invoke. An unknown action returns CommandNotRegistered and a
// schema failure returns CommandValidationFailed, each alongside a failed
// result. Otherwise the handler's CommandResult is returned as is with a
// nil error; a handler panic becomes a failed result carrying CommandFailed.
func (ex *Executor) Execute(ctx context.Context, cmd Command, ec ExecutionContext) (CommandResult, error) {
	entry, found := ex.catalog.Lookup(cmd.ActionName)
	if !found {
		err := &agenterrors.CommandNotRegistered{Action: string(cmd.ActionName)}
		return fail(err), err
	}

	params := MaskSensitiveValues(cmd.Params, ec.MaskedValues)
	if err := entry.schema.validate(params); err != nil {
		verr := &agenterrors.CommandValidationFailed{Action: string(cmd.ActionName), Message: err.Error()}
		return fail(verr), verr
	}

	maskedCmd := Command{ActionName: cmd.ActionName, Params: params}
	deps := ec.depsFor(entry.Needs)

	result := runHandler(ctx, entry, maskedCmd, deps)
	return result, nil
}

func runHandler(ctx context.Context, entry *Entry, cmd Command, deps Deps) (result CommandResult) {
	defer func() {
		if r := recover(); r != nil {
			err := agenterrors.NewCommandFailed(string(cmd.ActionName), "handler panic", fmt.Errorf("%v", r))
			result = fail(err)
		}
	}()
	return entry.Handler(ctx, cmd, deps)
}

// ExecuteSequence runs cmds in order, truncating the remainder per spec
// §4.4's sequence semantics: stop after a command that terminates the
// sequence, is page-changing, or whose URL-after differs from its
// URL-before.
func (ex *Executor) ExecuteSequence(ctx context.Context, cmds []Command, ec ExecutionContext) []CommandResult {
	results := make([]CommandResult, 0, len(cmds))

	for _, cmd := range cmds {
		urlBefore := ec.CurrentURL
		if ec.Page != nil {
			if u, err := ec.Page.CurrentURL(ctx); err == nil {
				urlBefore = u
			}
		}

		result, _ := ex.Execute(ctx, cmd, ec)
		results = append(results, result)

		entry, _ := ex.catalog.Lookup(cmd.ActionName)

		urlAfter := urlBefore
		if ec.Page != nil {
			if u, err := ec.Page.CurrentURL(ctx); err == nil {
				urlAfter = u
				ec.CurrentURL = u
			}
		}

		if entry != nil && entry.TerminatesSequence {
			break
		}
		if cmd.ActionName.IsPageChanging() {
			break
		}
		if urlAfter != urlBefore {
			break
		}
	}

	return results
}
