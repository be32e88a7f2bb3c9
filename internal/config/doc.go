// Package config defines the typed settings of a monitoring run and provides
// helpers to load, validate and save them in YAML format.
//
// Values come from the YAML file, then from DRIVER_GUARD_* environment
// variables (optionally read from a .env file), then from command-line flags
// merged by the caller. The package also reads class names from a YOLO
// data.yaml file.
package config
