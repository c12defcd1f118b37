// Package config loads engine configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// LITSEARCH_ prefixed environment variables with "__" separating nested keys.
// The result is decoded with mapstructure and validated with struct tags.
//
// Example file:
//
//	embedding:
//	  provider: openai
//	  model: text-embedding-3-small
//	index:
//	  backend: sqlite
//	  path: /var/lib/litsearch/index.db
//	search:
//	  min_score: 0.7
//	sources:
//	  article:
//	    enabled: false
package config
