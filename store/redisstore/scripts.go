package redisstore

import "github.com/redis/go-redis/v9"

const (
	updateStatusMissing  int64 = 0
	updateStatusMismatch int64 = 1
	updateStatusRotated  int64 = 2
)

// Record hash fields: owner, hash, exp (unix ms), revoked ("0"/"1"),
// created (unix ms), updated (unix ms).

// KEYS[1] owner index, KEYS[2] new record key.
// ARGV: record key prefix, id, owner, hash, exp_ms, now_ms, ttl_ms.
const createScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local f = redis.call("HMGET", key, "revoked", "exp")
  if f[1] == "0" and tonumber(f[2]) > tonumber(ARGV[6]) then
    redis.call("HSET", key, "revoked", "1", "updated", ARGV[6])
  end
end
redis.call("HSET", KEYS[2], "owner", ARGV[3], "hash", ARGV[4], "exp", ARGV[5], "revoked", "0", "created", ARGV[6], "updated", ARGV[6])
redis.call("PEXPIRE", KEYS[2], ARGV[7])
redis.call("SADD", KEYS[1], ARGV[2])
return 1
`

// KEYS[1] record key.
// ARGV: owner, previous hash, next hash, next exp_ms, now_ms, ttl_ms.
const updateScript = `
local f = redis.call("HMGET", KEYS[1], "owner", "hash", "exp", "revoked", "created")
if not f[1] then
  return {0}
end
if f[1] ~= ARGV[1] or f[4] ~= "0" or tonumber(f[3]) <= tonumber(ARGV[5]) or f[2] ~= ARGV[2] then
  return {1}
end
redis.call("HSET", KEYS[1], "hash", ARGV[3], "exp", ARGV[4], "updated", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
return {2, f[5]}
`

// KEYS[1] record key.
// ARGV: owner, hash, now_ms.
const revokeScript = `
local f = redis.call("HMGET", KEYS[1], "owner", "hash", "exp", "revoked")
if not f[1] then
  return 0
end
if f[1] ~= ARGV[1] or f[4] ~= "0" or tonumber(f[3]) <= tonumber(ARGV[3]) or f[2] ~= ARGV[2] then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1", "updated", ARGV[3])
return 1
`

// KEYS[1] owner index.
// ARGV: record key prefix, now_ms.
const revokeAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local f = redis.call("HMGET", key, "revoked", "exp")
  if f[1] == "0" and tonumber(f[2]) > tonumber(ARGV[2]) then
    redis.call("HSET", key, "revoked", "1", "updated", ARGV[2])
    n = n + 1
  end
end
return n
`

// KEYS[1] owner index.
// ARGV: record key prefix, now_ms.
const pruneScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local exp = redis.call("HGET", key, "exp")
  if not exp then
    redis.call("SREM", KEYS[1], id)
  elseif tonumber(exp) <= tonumber(ARGV[2]) then
    redis.call("DEL", key)
    redis.call("SREM", KEYS[1], id)
    n = n + 1
  end
end
return n
`

var (
	createLua    = redis.NewScript(createScript)
	updateLua    = redis.NewScript(updateScript)
	revokeLua    = redis.NewScript(revokeScript)
	revokeAllLua = redis.NewScript(revokeAllScript)
	pruneLua     = redis.NewScript(pruneScript)
)
