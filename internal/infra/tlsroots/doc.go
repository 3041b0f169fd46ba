// Package tlsroots builds the trusted root pool for connections to the
// identity service: the system roots plus any private CA certificates
// named in the configuration.
package tlsroots
