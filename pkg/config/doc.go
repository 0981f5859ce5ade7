// Package config loads the surface configuration: defaults overlaid by
// an optional YAML file. Timings are written as Go duration strings
// ("3s", "2m").
package config
