package domain

// KeyPrefix namespaces every key the service writes to or reads from Redis.
const KeyPrefix = "sitesearch:"
