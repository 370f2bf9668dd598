package common

// AuthorizationHeaderName carries "Bearer <access token>" on inbound requests.
const AuthorizationHeaderName = "Authorization"

// RequestIDHeaderName is echoed back on every response.
const RequestIDHeaderName = "X-Request-Id"

// ApkContentType is the MIME type stored with uploaded build artifacts.
const ApkContentType = "application/vnd.android.package-archive"
