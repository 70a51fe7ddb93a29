package mpesa

import "time"

// Config holds the Daraja API credentials and endpoints for one paybill.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	APIURL         string
	CallbackURL    string
	Timeout        time.Duration
}

const (
	tokenEndpoint          = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushEndpoint        = "/mpesa/stkpush/v1/processrequest"
	stkQueryEndpoint       = "/mpesa/stkpushquery/v1/query"
	transactionTypePayBill = "CustomerPayBillOnline"

	// tokenCacheKey is the Redis key for the cached OAuth token.
	tokenCacheKey = "mpesa:oauth_token"
	// tokenCacheMargin is shaved off the token TTL so a cached token is
	// never used at the edge of expiry.
	tokenCacheMargin = 60 * time.Second
)
