// Package services provides the external collaborators of the signing service.
//
// This package abstracts the document file store (getFile/updateFile) and mail delivery (sendMail)
// to support both local implementations (dev/test) and remote services (production).
//
// Each service implements an interface declared by the signing package and is selected via configuration.
package services
