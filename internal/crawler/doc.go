// Package crawler defines the shared vocabulary of the admission service:
// candidate URLs and their canonical keys, durable queue items, admission
// outcomes, and the ports implemented by stores and policies.
package crawler
