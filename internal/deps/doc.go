// Package deps resolves the external programs named in the configuration.
package deps
