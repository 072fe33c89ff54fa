package errors

import (
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// status is the transport mapping shared by every errno of a category.
type status struct {
	http int
	grpc codes.Code
}

var categoryStatus = map[int]status{
	CategorySuccess:  {http.StatusOK, codes.OK},
	CategoryRequest:  {http.StatusBadRequest, codes.InvalidArgument},
	CategoryResource: {http.StatusNotFound, codes.NotFound},
	CategoryConflict: {http.StatusConflict, codes.AlreadyExists},
	CategoryInternal: {http.StatusInternalServerError, codes.Internal},
	CategoryDatabase: {http.StatusInternalServerError, codes.Internal},
	CategoryCache:    {http.StatusInternalServerError, codes.Internal},
	CategoryNetwork:  {http.StatusServiceUnavailable, codes.Unavailable},
	CategoryTimeout:  {http.StatusGatewayTimeout, codes.DeadlineExceeded},
	CategoryConfig:   {http.StatusInternalServerError, codes.FailedPrecondition},
}

// Define creates and registers an Errno whose HTTP and gRPC status follow
// its category. Unknown categories map to 500 / Internal.
func Define(service, category, sequence int, en, zh string) (*Errno, error) {
	if en == "" {
		return nil, fmt.Errorf("errno %d/%d/%d: English message is required", service, category, sequence)
	}
	st, ok := categoryStatus[category]
	if !ok {
		st = status{http.StatusInternalServerError, codes.Internal}
	}
	e := New(MakeCode(service, category, sequence), st.http, st.grpc, en, zh)

	registryMu.Lock()
	defer registryMu.Unlock()
	if existing, ok := errnoRegistry[e.Code]; ok {
		return nil, fmt.Errorf("errno code %d already registered: %s", e.Code, existing.MessageEN)
	}
	errnoRegistry[e.Code] = e
	return e, nil
}

// MustDefine is Define that panics on a duplicate code.
func MustDefine(service, category, sequence int, en, zh string) *Errno {
	e, err := Define(service, category, sequence, en, zh)
	if err != nil {
		panic(err)
	}
	return e
}
