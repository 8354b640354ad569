// Package middleware holds the gin middleware of the HTTP ingress.
package middleware
