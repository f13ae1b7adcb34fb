package taxonomy

import "fmt"

// LoadError reports a taxonomy source that could not be read or parsed.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("taxonomy: load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// AmbiguityError reports an alias claimed by two subjects of one bucket.
type AmbiguityError struct {
	Level  string
	Grade  string
	Alias  string
	First  string
	Second string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("taxonomy: alias %q in %s/%s belongs to both %q and %q",
		e.Alias, e.Level, e.Grade, e.First, e.Second)
}
