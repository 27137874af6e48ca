package i18n

var messages = map[string]map[string]string{
	LocaleEn: {
		"error.bad_request":                 "Invalid request parameters",
		"error.unauthorized":                "Please sign in first",
		"error.forbidden":                   "You do not have permission to perform this action",
		"error.not_found":                   "Resource not found",
		"error.too_many_requests":           "Too many requests, please try again later",
		"error.internal":                    "Something went wrong, please try again later",
		"error.save_failed":                 "Failed to save, please try again later",
		"error.fetch_failed":                "Failed to load data, please try again later",
		"error.user_id_invalid":             "Invalid user identity",
		"error.user_id_type_invalid":        "Invalid user identity type",
		"error.admin_id_invalid":            "Invalid admin identity",
		"error.admin_id_type_invalid":       "Invalid admin identity type",
		"error.token_invalid":               "Your session has expired, please sign in again",
		"error.login_invalid":               "Incorrect username or password",
		"error.password_invalid":            "The new password must be at least 8 characters",
		"error.email_invalid":               "Please enter a valid PayPal email address",
		"error.affiliate_already_enrolled":  "You are already enrolled in the affiliate program",
		"error.affiliate_not_enrolled":      "You are not enrolled in the affiliate program yet",
		"error.affiliate_suspended":         "Your affiliate account is suspended, please contact support",
		"error.affiliate_status_invalid":    "Invalid affiliate status",
		"error.affiliate_not_found":         "Affiliate account not found",
		"error.affiliate_code_unknown":      "This referral code is not valid",
		"error.affiliate_code_exhausted":    "Could not generate a referral code, please try again",
		"error.referral_duplicate":          "This account has already been referred",
		"error.referral_self":               "You cannot refer yourself",
		"error.payout_insufficient_balance": "You need at least $20.00 available to request a payout",
		"error.payout_destination_missing":  "Add a PayPal email before requesting a payout",
		"error.payout_already_pending":      "You already have a payout in progress",
		"error.payout_not_found":            "Payout not found",
		"error.payout_status_invalid":       "This payout cannot be changed from its current status",
		"error.earning_not_found":           "Earning not found",
		"error.earning_not_reversible":      "This earning cannot be reversed",
		"error.ledger_divergence":           "Payouts are on hold while we review your balance. Our team has been notified",
		"error.webhook_signature_invalid":   "Invalid webhook signature",
		"error.webhook_payload_invalid":     "Invalid webhook payload",
		"error.queue_unavailable":           "Event queue is unavailable, please retry",
		"error.jwt_secret_missing":          "Authentication is not configured",
		"error.auth_header_missing":         "Missing Authorization header",
		"error.auth_header_invalid":         "Authorization header must be a Bearer token",
		"error.token_revoked":               "Your session was revoked, please sign in again",
		"error.role_invalid":                "Unknown role",
		"error.rate_limited":                "Too many requests, please retry in %d seconds",
		"error.rate_limit_unavailable":      "Rate limiter is unavailable, please retry later",
		"error.login_too_many":              "Too many sign-in attempts, please retry in %d seconds",
		"message.affiliate_enrolled":        "Welcome to the affiliate program",
		"message.payout_requested":          "Payout requested",
		"message.payout_resumed":            "Payouts resumed",
		"message.reconcile_clean":           "Ledger is consistent",
		"message.password_updated":          "Password updated",
		"message.event_accepted":            "Event accepted",
		"message.event_duplicate":           "Event already processed",
	},
	LocaleZhCN: {
		"error.bad_request":                 "请求参数错误",
		"error.unauthorized":                "请先登录",
		"error.forbidden":                   "无权执行该操作",
		"error.not_found":                   "资源不存在",
		"error.too_many_requests":           "请求过于频繁，请稍后再试",
		"error.internal":                    "服务异常，请稍后再试",
		"error.save_failed":                 "保存失败，请稍后再试",
		"error.fetch_failed":                "获取数据失败，请稍后再试",
		"error.user_id_invalid":             "用户身份无效",
		"error.user_id_type_invalid":        "用户身份类型无效",
		"error.admin_id_invalid":            "管理员身份无效",
		"error.admin_id_type_invalid":       "管理员身份类型无效",
		"error.token_invalid":               "登录已失效，请重新登录",
		"error.login_invalid":               "用户名或密码错误",
		"error.password_invalid":            "新密码至少需要 8 位",
		"error.email_invalid":               "请输入有效的 PayPal 邮箱",
		"error.affiliate_already_enrolled":  "您已加入推广计划",
		"error.affiliate_not_enrolled":      "您尚未加入推广计划",
		"error.affiliate_suspended":         "推广账户已被停用，请联系客服",
		"error.affiliate_status_invalid":    "推广状态无效",
		"error.affiliate_not_found":         "推广账户不存在",
		"error.affiliate_code_unknown":      "推广码无效",
		"error.affiliate_code_exhausted":    "推广码生成失败，请重试",
		"error.referral_duplicate":          "该用户已被推荐",
		"error.referral_self":               "不能推荐自己",
		"error.payout_insufficient_balance": "可用余额达到 $20.00 才能申请提现",
		"error.payout_destination_missing":  "请先填写 PayPal 邮箱",
		"error.payout_already_pending":      "已有处理中的提现申请",
		"error.payout_not_found":            "提现申请不存在",
		"error.payout_status_invalid":       "当前状态不允许该操作",
		"error.earning_not_found":           "收益记录不存在",
		"error.earning_not_reversible":      "该收益不可冲正",
		"error.ledger_divergence":           "余额核对中，提现已暂停，运营人员已收到通知",
		"error.webhook_signature_invalid":   "回调签名无效",
		"error.webhook_payload_invalid":     "回调数据无效",
		"error.queue_unavailable":           "事件队列不可用，请重试",
		"error.jwt_secret_missing":          "鉴权未配置",
		"error.auth_header_missing":         "缺少 Authorization 头",
		"error.auth_header_invalid":         "Authorization 头格式应为 Bearer token",
		"error.token_revoked":               "登录状态已失效，请重新登录",
		"error.role_invalid":                "角色不存在",
		"error.rate_limited":                "请求过于频繁，请 %d 秒后重试",
		"error.rate_limit_unavailable":      "限流服务不可用，请稍后重试",
		"error.login_too_many":              "登录尝试过多，请 %d 秒后重试",
		"message.affiliate_enrolled":        "已加入推广计划",
		"message.payout_requested":          "提现申请已提交",
		"message.payout_resumed":            "已恢复提现",
		"message.reconcile_clean":           "账本一致",
		"message.password_updated":          "密码已更新",
		"message.event_accepted":            "事件已接收",
		"message.event_duplicate":           "事件已处理",
	},
}
