package utils

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// MergeErrors folds the non-nil errors of a parallel operation into one.
func MergeErrors(errs []error, hint string) error {
	var merged *multierror.Error
	for _, e := range errs {
		if e != nil {
			merged = multierror.Append(merged, e)
		}
	}
	if err := merged.ErrorOrNil(); err != nil {
		return errors.Wrapf(err, "%s failed with %s", hint, Pluralize(len(merged.Errors), "error", "errors"))
	}
	return nil
}
