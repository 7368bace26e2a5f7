package fixture

import "errors"

var (
	// ErrFixtureMissing is returned when no metadata file exists for a fixture.
	ErrFixtureMissing = errors.New("fixture missing")

	// ErrMalformedFixture is returned when a fixture exists but cannot be
	// decoded. It is never a cache miss.
	ErrMalformedFixture = errors.New("malformed fixture")

	// ErrInvalidNamespace is returned when a test name or language would place
	// fixtures outside the fixture root.
	ErrInvalidNamespace = errors.New("invalid fixture namespace")
)
