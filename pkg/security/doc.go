// Package security builds mutual-TLS server and client configurations from
// cert/key/CA files. No listener or client in this repository calls these
// loaders; every listener serves plain TCP. It keeps
// certs.go's cert/key/CA-file loading and tls.Config assembly
// (tls.RequireAndVerifyClientCert) from the teacher's own security
// package, dropping the full certificate-authority issuance machinery
// (ca.go's CertAuthority, IssueNodeCertificate, rotation bookkeeping)
// since nothing in this scope issues its own certificates — operators
// supply cert/key/CA files from whatever PKI they already run, the same
// way a Redis/Dragonfly deployment does.
package security
