package handler

// UserError is shown to the user as Message. Err, if set, is the cause that
// gets logged instead.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

var _ error = (*UserError)(nil)
