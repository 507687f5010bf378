package sync

import "time"

// HTTPRequestTimeout is the timeout for all HTTP requests to external APIs.
// Mailjet callbacks and hub commits are expected to complete quickly, there are no retries.
const HTTPRequestTimeout = 3 * time.Second

// MailjetEndpoint is the base URL of the Mailjet REST API (v3).
const MailjetEndpoint = "https://api.mailjet.com/v3/REST/"

// MaxWebhookBodySize limits how much of an inbound callback body is read.
const MaxWebhookBodySize = 1 << 20
