package portalcache

import (
	"strings"

	"github.com/plushcare/portal/internal/cache"
)

// Cache names, also the first segment of every key
const (
	NameCustomer      = "customer"
	NameNotifications = "notifications"
	NameQuery         = "query"
	NameInvoice       = "invoice"
	NameJob           = "job"
)

// CustomerKey normalizes email so lookups are case insensitive
func CustomerKey(email string) string {
	return NameCustomer + ":" + strings.ToLower(strings.TrimSpace(email))
}

// idEscaper keeps a customer ID to one key segment even when it contains ':'
var idEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

func idSegment(customerID string) string { return idEscaper.Replace(customerID) }

func NotificationsKey(customerID string) string {
	return NameNotifications + ":" + idSegment(customerID)
}

// QueryKey scopes a named query result to one customer
func QueryKey(customerID, query string) string {
	return NameQuery + ":" + idSegment(customerID) + ":" + query
}

func InvoiceKey(customerID, invoiceID string) string {
	return NameInvoice + ":" + idSegment(customerID) + ":" + invoiceID
}

func JobKey(customerID, jobID string) string {
	return NameJob + ":" + idSegment(customerID) + ":" + jobID
}

// ownedBy matches keys whose second segment is the escaped customerID, the
// layout every builder above except CustomerKey produces
func ownedBy(customerID string) cache.Matcher {
	want := idSegment(customerID)
	return func(key string) bool {
		if want == "" {
			return false
		}
		_, rest, ok := strings.Cut(key, ":")
		if !ok {
			return false
		}
		seg, _, _ := strings.Cut(rest, ":")
		return seg == want
	}
}
