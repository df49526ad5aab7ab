package s3store

import (
	"net/http"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/korefi/commons-go/pkg/objstore"
)

// wrapAWS translates SDK errors into the objstore taxonomy. The original
// error stays in the chain for errors.Is/As.
func wrapAWS(err error, msg string) error {
	return objstore.WrapErr(mapAWSCode(err), err, msg)
}

func mapAWSCode(err error) objstore.Code {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return objstore.CodeUnknown
	}

	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return objstore.CodeNotFound
	case s3.ErrCodeNoSuchBucket:
		return objstore.CodeBucketMissing
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
		"ExpiredToken", "TokenRefreshRequired":
		return objstore.CodeNotAuthorized
	case "RequestTimeout", "SlowDown", "ServiceUnavailable", "InternalError",
		request.ErrCodeRequestError, request.ErrCodeResponseTimeout,
		request.ErrCodeRead:
		return objstore.CodeTransient
	}

	// Fall back to the HTTP status when the code is not recognized.
	if reqErr, ok := err.(awserr.RequestFailure); ok {
		switch {
		case reqErr.StatusCode() == http.StatusNotFound:
			return objstore.CodeNotFound
		case reqErr.StatusCode() == http.StatusUnauthorized,
			reqErr.StatusCode() == http.StatusForbidden:
			return objstore.CodeNotAuthorized
		case reqErr.StatusCode() == http.StatusTooManyRequests,
			reqErr.StatusCode() >= 500:
			return objstore.CodeTransient
		}
	}
	return objstore.CodeUnknown
}

func isNotFound(err error) bool {
	return mapAWSCode(err) == objstore.CodeNotFound
}
