// Package db holds the key layout of the local preference cache.
package db

import "fmt"

var (
	RatesBucket       = []byte("rates")
	PreferencesBucket = []byte("preferences")
)

func Buckets() [][]byte {
	return [][]byte{RatesBucket, PreferencesBucket}
}

func RateKey(symbol string) []byte {
	return []byte(fmt.Sprintf("rate:%s", symbol))
}

func FiatKey(userID string) []byte {
	return []byte(fmt.Sprintf("fiat:%s", userID))
}
