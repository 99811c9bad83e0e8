package domain

import "errors"

// ErrMissingCredential marks failures caused by an absent backend credential.
// They are configuration problems and never worth retrying.
var ErrMissingCredential = errors.New("missing credential")
