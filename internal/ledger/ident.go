package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// Minted numbers are uppercase; validation accepts either case.
	accountNumberRe = regexp.MustCompile(`^ACCT-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}$`)
	transactionIDRe = regexp.MustCompile(`^[A-Z]{3}-[0-9A-Z]{1,13}-[0-9A-F]{8}$`)
)

// MintAccountNumber generates a new account number of the form
// ACCT-XXXX-XXXX-XXXX where each group is four uppercase hex digits
// drawn from crypto/rand.
func MintAccountNumber() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the platform RNG is broken
		panic(fmt.Sprintf("ledger: rng unavailable: %v", err))
	}
	h := strings.ToUpper(hex.EncodeToString(b[:]))
	return fmt.Sprintf("ACCT-%s-%s-%s", h[0:4], h[4:8], h[8:12])
}

// MintTransactionID generates a new transaction id of the form
// PFX-TTTTTTTT-RRRRRRRR: a three-letter kind prefix, the current unix
// milliseconds in uppercase base36, and eight uppercase hex digits of
// randomness. Timestamp-first keeps ids roughly sortable by creation time.
func MintTransactionID(kind TransactionKind) string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("ledger: rng unavailable: %v", err))
	}
	millis := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	return fmt.Sprintf("%s-%s-%s", kind.Prefix(), millis, strings.ToUpper(hex.EncodeToString(b[:])))
}

// ValidAccountNumber reports whether s is a well-formed account number.
func ValidAccountNumber(s string) bool {
	return accountNumberRe.MatchString(s)
}

// ValidTransactionID reports whether s is a well-formed transaction id.
func ValidTransactionID(s string) bool {
	return transactionIDRe.MatchString(s)
}
