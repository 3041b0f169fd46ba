// Package main provides the entry point for keymesh-cli.
//
// keymesh-cli signs in to a KeyMesh identity service, keeps the session
// alive across invocations and manages the user's API keys:
//
//	keymesh-cli login --username alice
//	keymesh-cli whoami
//	keymesh-cli apikey create --name ci --expires-in 30
//	keymesh-cli apikey list -o json
//	keymesh-cli logout
//
// Configuration is read from ~/.keymesh/config.yaml, ./.env and KEYMESH_*
// environment variables; global flags take precedence.
package main
