// Package config loads affinity.yml.
//
// A config file tunes the monitor (affinity goroutine prefix, monitoring,
// buffer cap, extra exemptions, logging) and tells the weaver which types
// are guarded. Every field is optional except version:
//
//	version: "1.0"
//	affinity:
//	  name_prefix: event-loop
//	monitoring:
//	  enabled: true
//	  max_pending: 1000
//	exempt:
//	  signatures: ["Refresh()"]
//	  patterns: [{prefix: on, suffix: Changed}]
//	weave:
//	  guarded_types: [widgets.Button]
//	  attach_methods: [Add]
//	log:
//	  level: info
//	  format: json
package config
