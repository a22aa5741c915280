package arch

var armRegs = []string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc",
	"cpsr",
}

var armAliases = map[string]string{
	"r13": "sp",
	"r14": "lr",
	"r15": "pc",
	"sb":  "r9",
	"sl":  "r10",
	"fp":  "r11",
	"ip":  "r12",
}

var arm64Regs = []string{
	"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7",
	"x8", "x9", "x10", "x11", "x12", "x13", "x14", "x15",
	"x16", "x17", "x18", "x19", "x20", "x21", "x22", "x23",
	"x24", "x25", "x26", "x27", "x28", "fp", "lr", "sp",
	"pc", "nzcv",
}

var arm64Aliases = map[string]string{
	"x29": "fp",
	"x30": "lr",
}

var x86Regs16 = []string{
	"ax", "bx", "cx", "dx", "si", "di", "bp", "sp",
	"ip", "flags", "cs", "ds", "es", "ss",
}

var x86Regs32 = []string{
	"eax", "ebx", "ecx", "edx", "esi", "edi", "ebp", "esp",
	"eip", "eflags",
}

var x86Regs64 = []string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"rip", "rflags",
}
