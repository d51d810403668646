// Package errors classifies delivery failures and retries the ones worth
// retrying.
//
// Every error seen during fan-out falls into one Category:
//   - Transient: the endpoint or broker may recover (5xx, 408, 429,
//     timeouts, dropped connections).
//   - Permanent: resending the same request will fail the same way.
//   - Invalid: the caller passed malformed input. Returned to the caller,
//     never retried.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Category is the handling class of an error.
type Category int

// Categories.
const (
	CategoryTransient Category = iota
	CategoryPermanent
	CategoryInvalid
)

var categoryNames = [...]string{
	CategoryTransient: "transient",
	CategoryPermanent: "permanent",
	CategoryInvalid:   "invalid",
}

// String returns the category name.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// DeliveryError pins a category on a delivery failure and records how many
// attempts were made against Target.
type DeliveryError struct {
	Err      error
	Category Category
	Target   string
	Attempts int
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	msg := e.Err.Error()
	if e.Target != "" {
		msg = fmt.Sprintf("deliver to %s: %s", e.Target, msg)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s (%s, %d attempts)", msg, e.Category, e.Attempts)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Transient marks err as worth retrying. Use it for failures the category
// can't be read from, such as a broker connection dropping mid-publish.
func Transient(err error, target string) error {
	if err == nil {
		return nil
	}
	return &DeliveryError{Err: err, Category: CategoryTransient, Target: target}
}

// Permanent marks err as not worth retrying.
func Permanent(err error, target string) error {
	if err == nil {
		return nil
	}
	return &DeliveryError{Err: err, Category: CategoryPermanent, Target: target}
}

// Categorize returns the handling class of err. An explicit DeliveryError
// category wins; unknown errors are permanent.
func Categorize(err error) Category {
	var (
		delivery *DeliveryError
		invalid  *ValidationError
		httpErr  *HTTPError
		timeout  *TimeoutError
	)
	switch {
	case err == nil:
		return CategoryPermanent
	case errors.As(err, &delivery):
		return delivery.Category
	case errors.As(err, &invalid):
		return CategoryInvalid
	case errors.As(err, &httpErr):
		return statusCategory(httpErr.StatusCode)
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	default:
		return CategoryPermanent
	}
}

func statusCategory(code int) Category {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return CategoryTransient
	case code >= 500:
		return CategoryTransient
	default:
		return CategoryPermanent
	}
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsInvalid reports whether err was caused by malformed input.
func IsInvalid(err error) bool {
	return Categorize(err) == CategoryInvalid
}
