// Package internal contains the implementation packages of autobuild.
//
// # Package Organization
//
//   - ignore: decides whether a changed path may trigger a rebuild
//   - watcher: change sources (fsnotify or polling) and the debouncer
//   - dispatch: filters change events and runs one rebuild at a time
//   - build: pre-build commands, the documentation compiler and the
//     output directory lock
//   - server: static file server with reload script injection and the
//     reload websocket
//   - config: viper-backed configuration and validation
//   - logging: structured logger and the console printer
//   - errors: typed errors with codes and suggestions
//   - version: build information
//
// # Data Flow
//
// A watcher emits ChangeEvents. The dispatcher drops events the ignore
// filter rejects, groups the rest with the debouncer and hands each batch
// to the builder. When the builder returns, the server tells connected
// browsers to reload.
package internal
