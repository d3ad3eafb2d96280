package sqlinline

const QGetUserBalance = `--sql f4cd3a6d-2827-4abc-a694-2f5d1c8e3ca6
select balance
from users
where id = $1;
`

const QListBalanceRecords = `--sql 68c9dde4-1e99-4cac-87bc-691cde0e0c04
select id, type, amount, balance, description, coalesce(related_id, ''), created_at
from balance_records
where user_id = $1
order by created_at desc
limit $2 offset $3;
`

const QCountBalanceRecords = `--sql a65b5ce7-5cb1-438c-a2ec-b3915abda26d
select count(*)
from balance_records
where user_id = $1;
`
