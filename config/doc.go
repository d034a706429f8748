// Package config loads engine settings from a YAML file and DOCSEARCH_*
// environment variables on top of built-in defaults.
//
// Example file:
//
//	remote:
//	  url: https://project.supabase.co
//	  key: anon-key
//	  embedding_column: hf_embedding
//	embedding:
//	  provider: fastembed
//	  model: BAAI/bge-small-en-v1.5
//	search:
//	  threshold: 0.8
//	  limit: 10
//	replication:
//	  batch_size: 1000
//	  retry_delay: 500ms
package config
