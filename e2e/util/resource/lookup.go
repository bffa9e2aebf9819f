// Package resource answers the one question every provisioning step starts
// with: does a resource with this name exist right now?
package resource

import (
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/failure"
)

// Existence is the answer of a state query.
type Existence int

const (
	// Unknown is returned alongside an error.
	Unknown Existence = iota
	Exists
	NotFound
)

func (e Existence) String() string {
	switch e {
	case Exists:
		return "Exists"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// GetFunc is the signature of a typed or dynamic client Get.
type GetFunc[T any] func(ctx context.Context, name string, opts metav1.GetOptions) (T, error)

// Lookup queries a resource by name. A successful Get means Exists and a
// 404 means NotFound; every other answer is an UnexpectedState failure that
// carries the status code the server replied with.
func Lookup[T any](ctx context.Context, kind string, get GetFunc[T], name string) (Existence, T, error) {
	var zero T
	if name == "" {
		return Unknown, zero, fmt.Errorf("%s name must not be empty", kind)
	}
	obj, err := get(ctx, name, metav1.GetOptions{})
	switch {
	case err == nil:
		return Exists, obj, nil
	case apierrors.IsNotFound(err):
		return NotFound, zero, nil
	default:
		return Unknown, zero, failure.New(failure.UnexpectedState, kind+"/"+name, StatusCode(err), err)
	}
}

// StatusCode extracts the HTTP status code of an API error, or 0 when the
// error did not come from the server.
func StatusCode(err error) int32 {
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		return status.Status().Code
	}
	return 0
}
