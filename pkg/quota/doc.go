/*
Package quota implements the per-tenant directory quota store (spec
§4.3): a durable map from directory path to (current_count, max_count,
enabled), sharing pkg/storage's engine with pkg/metadata but never the
same bbolt file.

try_increment is the only operation that can be refused; every other
mutation always succeeds. TenantWideKey names the reserved directory
key used to model a tenant-wide limit distinct from any real directory
path.
*/
package quota
