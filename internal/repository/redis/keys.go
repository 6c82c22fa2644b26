package redis

import "fmt"

const ns = "classbook:v1"

func KeyOffering(offeringID int64) string {
	return fmt.Sprintf("%s:offering:%d", ns, offeringID)
}

// KeyRateLimit names one window bucket of a caller's attempt counter.
func KeyRateLimit(scope, caller string, bucket int64) string {
	return fmt.Sprintf("%s:rl:%s:%s:%d", ns, scope, caller, bucket)
}

func ChannelOfferingsChanged() string {
	return ns + ":offerings:changed"
}
