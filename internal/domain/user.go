package domain

// User 是客户端持有的身份，服务端只在建立连接时读取。
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
