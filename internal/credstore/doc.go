// Package credstore persists per-target OAuth state: the client
// registration, the token set and the in-flight PKCE code verifier.
//
// Three backends satisfy Store:
//
//   - MemoryStore: process-local, for tests and ephemeral gateways
//   - FileStore: one 0600 JSON file per provider and record kind; reads fail
//     closed with api.KindInsecureFilePermissions when a file is readable
//     by group or other
//   - KVStore: adapts any KV implementation; RedisKV is the shipped one
//
// Every read returns (nil, nil) when nothing is stored, except CodeVerifier,
// which returns ErrNoVerifier.
package credstore
