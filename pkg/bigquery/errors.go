package bigquery

import (
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsNotFound reports a 404 from the BigQuery API.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// Retryable reports whether an insert failure is transient. Composite errors
// are retryable only when every leaf is.
func Retryable(err error) bool {
	leaves := leafErrors(err)
	if len(leaves) == 0 {
		return false
	}
	for _, leaf := range leaves {
		if !retryableLeaf(leaf) {
			return false
		}
	}
	return true
}

func leafErrors(err error) []error {
	if err == nil {
		return nil
	}
	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		return flatten(multi)
	}
	var put bigquery.PutMultiError
	if errors.As(err, &put) {
		var out []error
		for _, row := range put {
			out = append(out, flatten(row.Errors)...)
		}
		return out
	}
	return []error{err}
}

func flatten(errs bigquery.MultiError) []error {
	var out []error
	for _, e := range errs {
		out = append(out, leafErrors(e)...)
	}
	return out
}

func retryableLeaf(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal,
			codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}
