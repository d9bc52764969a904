// Package catalog holds the shared domain types and collaborator interfaces used
// across the ingestion pipeline: categories, canonical product rows, embedding
// vectors, and the fetch/render/store contracts implemented by adapters.
package catalog
