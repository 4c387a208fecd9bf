// Package portalcache wires the portal's record caches: customers by email,
// unread notification counts, query results, invoices and jobs. Each cache has
// its own capacity and TTL, tunable from a YAML file.
package portalcache
