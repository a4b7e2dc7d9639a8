// Package config handles configuration loading for agentchat.
//
// Configuration is YAML with ${VAR_NAME} environment variable expansion
// and Go duration syntax for timing values:
//
//	database:
//	  path: ${HOME}/.local/share/agentchat/chat.db
//	storage:
//	  dir: ${HOME}/.local/share/agentchat/blobs
//	session:
//	  token_env: AGENTCHAT_TOKEN
//	agent:
//	  default_model: claude-3-5-sonnet-20241022
//	worker:
//	  enabled: true
//	  chunk_delay: 50ms
//	logging:
//	  level: info   # debug, info, warn, error
//	  format: text  # text, json
//
// Load validates that database.path and storage.dir are present.
package config
