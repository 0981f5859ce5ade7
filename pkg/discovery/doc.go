// Package discovery advertises and finds audio engines on the local
// network over mDNS/DNS-SD.
//
// An engine registers one _surfacelink._tcp service carrying its
// stream port, protocol version and active session in TXT records. A
// surface that is started without an explicit engine address browses
// for the service and connects to the first engine it resolves.
package discovery
