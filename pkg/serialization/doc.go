/*
Package serialization converts session snapshots and other values to bytes and back.

Two codecs are provided: JSON (the default, indented for readability) and YAML.
Types that travel inside a snapshot either implement json/yaml marshalers or
the Value contract: Serialized returns a plain map, and a companion
constructor rebuilds the type from that map with Decode.
*/
package serialization
