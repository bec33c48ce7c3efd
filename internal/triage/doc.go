// Package triage implements the email triage pipeline and the approval
// queue lifecycle for the billing office mailbox.
package triage
