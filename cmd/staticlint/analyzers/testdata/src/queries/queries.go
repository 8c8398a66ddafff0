package queries

const findGlobal = `SELECT id FROM mappings WHERE shortcode = $1 AND subdomain IS NULL` // want `условие "subdomain IS NULL" не находит глобальные ссылки`

const findPartitioned = "SELECT id FROM mappings WHERE subdomain is not null" // want `условие "subdomain is not null" не находит глобальные ссылки`

const findByPartition = `SELECT id FROM mappings WHERE shortcode = $1 AND subdomain = $2`

const expiresNull = `SELECT id FROM mappings WHERE expires_at IS NULL`

var _ = []string{findGlobal, findPartitioned, findByPartition, expiresNull}
