// Package onnx implements the ONNX model file format: hand-written protobuf
// structs, a wire-format encoder and decoder, the external-data convention
// for large tensor payloads, and lightweight model inspection.
//
// Only the subset of the format the exporter produces and reloads is
// covered. The encoder is canonical: fields are emitted in field-number
// order and repeated fields in slice order, so identical models serialize
// to identical bytes.
package onnx
